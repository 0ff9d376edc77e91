// Package errors provides the structured error descriptors that cross the
// foreign-function boundary.
//
// Every failure in the runtime becomes exactly one Error carrying a stable
// integer code and a UTF-8 message. Codes never change meaning between
// releases; hosts match on the code, not the message.
//
// Use the convenience constructors:
//
//	err := errors.QueueFull()
//	err := errors.InvalidState("call", "stopping")
//
// and From to normalize an arbitrary handler error into a descriptor:
//
//	derr := errors.From(err) // *Error passes through, others wrap as HandlerError
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
