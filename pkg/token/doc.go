// Package token issues and verifies scoped gateway credentials. Records
// live in tokens.json under the state root; plaintext secrets exist only
// in the mint response. Verification walks every live record with a
// constant-time compare so timing reveals only the record count.
package token
