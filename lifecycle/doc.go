// Package lifecycle drives a deployment generation from installation to
// control.
//
// A Controller moves each generation through Installing, Waiting,
// Activating and Controlling. Installation pre-populates the generation's
// static-assets tier from a manifest; activation garbage-collects every
// tier the generation does not retain and claims all open clients.
// A generation superseded by a newer one ends Redundant.
package lifecycle
