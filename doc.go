// Package loonypg is a low-level PostgreSQL client speaking the frontend
// side of the wire protocol version 3 over a single connection.
/*
Establishing a Connection

Use Connect to establish a connection. It accepts a connection string in URL
or DSN form and will read the environment for libpq style environment
variables. ConnectConfig takes a prepared *Config instead.

Authentication is negotiated automatically: trust, cleartext password, MD5,
and SCRAM-SHA-256 are supported.

Executing a Query

Query executes SQL via the simple query protocol and collects the entire
response into a Result: the field descriptions, the rows as positional raw
text values (nil meaning SQL NULL), and the parsed command tag. Only one
query may be in flight per connection; a second Query before the first
finishes fails immediately.

Asynchronous Messages

ParameterStatus updates are folded into the session parameter map at any
time. Notices are delivered to the Config.OnNotice handler and never affect a
query result.

A Conn is not safe for concurrent use.
*/
package loonypg
