// Package mailer delivers verification emails outside the request path.
//
// The engine enqueues a [Message] on a [Dispatcher]; a single worker hands it
// to the configured [Sender] under a timeout. A full queue drops the message
// and a failed send is logged. Neither case is reported to the caller: the code
// or challenge it carries is already persisted and can be re-sent.
package mailer
