// Package refinement rewrites a user's dispute statement into a clear,
// respectful appeal using a language model.
//
// The statement is untrusted input. It is sanitized and passed to the model
// only as data inside a delimited block, and every model output is checked
// by a PolicyChecker before it is accepted. There is no fallback to the
// unrefined text: a statement either passes policy or the refinement fails.
package refinement
