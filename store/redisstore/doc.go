// Package redisstore implements goIdentity.IdentityStore on Redis.
//
// Each identity is one hash at <prefix>:id:<id>. Username, access token and
// pending reset token are indexed by string keys pointing at the id. Save
// and SaveAllowance run in WATCH/MULTI transactions so the hash and its
// indexes change together.
package redisstore
