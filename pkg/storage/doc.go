// Package storage provides the shared persistence discipline for the JSON
// documents under the state root: temp-file-then-rename writes so readers
// never see a partial document, corrupt-file backup and reset, and
// revision-checked updates that detect concurrent external edits.
package storage
