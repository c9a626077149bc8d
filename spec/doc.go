// Package spec implements the loader for the rule specification
// language: a lexer, a recursive-descent parser and a scope resolver
// producing Rule, Invariant, Ghost, Hook and helper Function
// declarations.
//
// Loading is isolated per declaration: a malformed or ill-scoped
// declaration yields a positioned *Error in Program.Errs and is excluded
// from the program, while every other declaration loads normally.
package spec
