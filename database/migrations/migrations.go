// Package migrations holds the schema of the resto store. Each file registers
// its migrations from init(); cmd/resto imports the package for that side
// effect.
package migrations
