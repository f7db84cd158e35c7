// Package logging provides structured logging for csphere.
//
// Logger wraps Zap with a Trace level below Debug, optional OpenTelemetry
// log export alongside stdout, automatic correlation fields pulled from the
// context, and field-level redaction of credentials.
//
// Typical use:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithUserID(ctx, userID)
//	ctx = logging.WithContentID(ctx, contentID)
//	logger.Info(ctx, "content linked", zap.String("folder.id", folderID))
//
// which writes, in JSON format:
//
//	{"level":"info","ts":"...","msg":"content linked","service":"csphere",
//	 "user.id":"...","content.id":"...","folder.id":"..."}
//
// Use NewTestLogger in tests to capture and assert on entries.
package logging
