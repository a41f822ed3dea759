package utils

// Prod returns the product of the elements of v. An empty vector has
// product 1.
func Prod(v []int) int {
	p := 1
	for _, x := range v {
		p *= x
	}
	return p
}
