// Kartta - Cloud Infrastructure Map
// Query. Normalize. Relate.
package main

func main() {
	Execute()
}
