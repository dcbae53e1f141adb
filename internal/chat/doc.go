// Package chat defines the entities shared by the delivery core: users,
// messages, contacts and the sentinel errors every layer reports with.
//
// Messages are created by the delivery coordinator and owned by the message
// store afterwards. A conversation is never stored on its own; it is the
// unordered pair of participants used as a query key.
package chat
