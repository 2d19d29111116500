// Package reduce replaces dendritic subtrees by single equivalent cylinders.
//
// For a subtree root and a frequency f the reducer measures the input
// impedance Z0 at the root's proximal end and the lowest transfer impedance
// Z_low anywhere in the subtree. With q = sqrt(1 + iωRmCm) it solves
// |Z0/cosh(qL)| = |Z_low| for the electrotonic length L, then picks the
// diameter whose sealed cylinder of length L has input impedance Z0:
//
//	d = |(2/π · sqrt(Rm·Ra)/(q·Z0) · coth(qL))^(2/3)|
//
// Every original segment is relocated onto the cylinder at the electrotonic
// distance x where |Z0·cosh(q(L−x))/cosh(qL)| matches its own transfer
// impedance. Distributed parameters of the segments landing in the same new
// segment are averaged; new segments nothing landed in are filled by linear
// interpolation along the cylinder.
//
// All three root searches go through Bisect.
package reduce
