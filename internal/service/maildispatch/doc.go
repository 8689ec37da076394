// Package maildispatch turns a refined statement into a printed appeal
// letter and hands it to the mail carrier exactly once per intake.
package maildispatch
