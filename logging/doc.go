// Package logging builds the runtime's zap logger.
//
// Log output crosses the boundary through a host callback rather than a
// file or stderr: a custom zapcore.Core renders each entry to text and
// hands it to the callback together with a numeric level byte. The level
// is held in a zap.AtomicLevel so it can be changed while the plugin is
// running.
//
// Level bytes on the wire: 0 trace, 1 debug, 2 info, 3 warn, 4 error,
// 5 off. Trace maps to debug internally.
package logging
