// Package upload accepts evidence photos. Declared size and type are
// enforced before the body is touched; content is then sniffed and decoded
// far enough to prove it is the image it claims to be.
package upload
