// Package logtail reads the end of klaxon's JSON log file and renders it for
// a terminal.
//
// Tail keeps at most n lines in memory regardless of file size, scanning the
// file once. Render passes each JSON entry through zerolog.ConsoleWriter so
// the output matches what one-shot commands print to stderr.
//
//	lines, err := logtail.Tail(cfg.LogPath(), 200)
//	if err != nil {
//		return err
//	}
//	return logtail.Render(os.Stdout, lines, logtail.Options{MinLevel: zerolog.WarnLevel})
package logtail
