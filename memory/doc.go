// Package memory holds the chat message type stored in conversation state and
// its JSON file persistence.
//
// Persistence model:
//   - Only text messages are stored (role + text).
//   - Files are used for exporting a thread and seeding a new one; live state
//     lives in the checkpoint store.
package memory
