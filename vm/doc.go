// Package vm implements the tern virtual machine.
//
// This package contains:
//   - Value representation (Go scalars, UTF-16 strings, objects)
//   - Lazy class linking through a loader.Resolver
//   - Virtual and static method dispatch
//   - The bytecode interpreter with exception handlers
//   - Host classes (tern.lang.*) with native methods
//   - Argument and result marshalling for embedders
package vm
