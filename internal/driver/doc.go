// Package driver launches a whole ring experiment: one node process per
// configured address, each with its own tick rate, all logging into a
// fresh experiment folder. It watches the nodes through their inspection
// endpoints and terminates whatever is left once the run and its grace
// period are over.
package driver
