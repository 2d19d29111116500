// Package cable is a passive frequency-domain cable solver standing in for
// a simulation engine's impedance tool.
//
// Each segment of a section is modelled as a uniform cylinder with
// characteristic impedance Zc = sqrt(ri/ym) and propagation constant
// γ = sqrt(ri·ym), where ri = 4·Ra/(π·d²) and ym = π·d·(gLeak + iω·cm).
// Child sections attach in parallel at their parent's distal end and every
// terminal is sealed.
//
// The engine keeps a section stack. Callers push the section they want to
// address, call Compute to inject a unit current at a position of it, then
// query Input and Transfer on whichever section is current, and pop:
//
//	eng.PushSection(root)
//	defer eng.PopSection()
//	eng.Compute(0, 100)
//	mag, phase, err := eng.Input(0)
//
// Magnitudes are returned in MΩ and phases in radians.
package cable
