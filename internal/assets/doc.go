// Package assets keeps a named, versioned cache of the wizard's static
// resources in the durable store and serves them cache-first.
//
// Install precaches a generation all-or-nothing, Activate drops older
// generations, and Fetch answers from the cache before the network.
package assets
