// Package secrets redacts credentials from user-supplied text (bookmark
// notes and extracted page text) before it is sent to the summarizer or
// embedding oracle.
//
// Detection uses the gitleaks default rule set plus a few assignment-style
// patterns that gitleaks deliberately leaves to its generic entropy rule.
package secrets
