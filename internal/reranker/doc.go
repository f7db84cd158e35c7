// Package reranker scores recalled folder candidates against a content item.
//
// A candidate's score is the sum of three weighted layers:
//
//	keyword   matched keywords / total keywords
//	fuzzy     token-set ratio between folder description and content text
//	semantic  cosine similarity between folder profile and content vector
//
// URL patterns are checked separately by MatchPattern; a pattern hit
// bypasses scoring entirely.
package reranker
