// Package database provides PostgreSQL storage for rooms.
//
// One root pool holds the rooms table. Every room gets its own schema in the
// same database (see SchemaName) and its own small pool whose connections
// run with search_path set to that schema, so room queries use unqualified
// table names:
//   - messages, deleted_messages: chat history and tombstones
//   - moderators, block_list: moderation state
//   - files: inline uploads
//   - pending_tokens, tokens: auth challenges and claimed tokens
//
// Room pools are created lazily by the Registry and closed again once idle.
package database
