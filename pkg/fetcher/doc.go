/*
Package fetcher reads files and directory listings from a remote repository at a
single pinned commit, transparently crossing submodules and symlinks.

	       +-----------+
	       |  Session  |
	       | (Source)  |
	       +-----+-----+
	             |
	   +---------+---------+
	   |                   |
	+--+-----------+  +----+-----+
	| LinkedPaths  |  |  remote  |
	| (rewrites)   |  | Provider |
	+--------------+  +----------+

🎯 Purpose:
- Pins a source to one commit and keeps every read on it
- Remembers where submodules and symlinks point, per session
- Retries a missing path once after discovering the indirection above it

🔄 Flow:
1. The requested path is joined with the source directory
2. Known indirections rewrite it into the repository that owns it
3. The provider client is asked for it
4. On not found, ancestors are listed from the parent upwards until a submodule or
   symlink entry explains the miss; the indirection is recorded and the read retried

⚡ Guarantees:
- Commit resolution happens at most once per session
- Directory listings and file reads are memoized
- At most one retry per read; the second miss is DependencyFileNotFoundError

🤝 Interfaces:
- Session: commit, listing, file and glob reads
- LinkedPaths: the indirection cache, never evicted
- remote.Provider: the per host content client

A Session is meant for one goroutine. Create one per source when reading sources in
parallel.
*/
package fetcher
