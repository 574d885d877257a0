/*
Package session implements session management and persistence orchestration.

A session backs one open flow (a pending confirmation, a wizard in progress or an
offered option list). The Manager serializes turns on the same session ID with a
ref-counted in-process lock plus an optional distributed lock, and performs every
mutation as an upsert (Open) or a compare-and-set (Advance, Claim, Cancel) so a
client retry racing a legitimate resume can never execute an action twice.
*/
package session
