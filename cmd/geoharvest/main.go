// Command geoharvest drives the tile enumeration, download, and
// stitch/crop pipeline against a task directory.
package main

func main() {
	Execute()
}
