package keys_test

import (
	"fmt"

	"github.com/jonwraymond/plancache/keys"
)

func ExampleBuilder_Build() {
	builder := keys.Builder{
		RouterVersion: "2.1.0",
		SchemaHash:    "3f2a9c",
	}

	key := builder.Build(keys.Params{
		QueryHash:     "9d4e1a20",
		OperationName: "TopProducts",
		Scopes:        []string{"read:products", "read:reviews"},
	})

	// Identical inputs always produce the identical key.
	again := builder.Build(keys.Params{
		QueryHash:     "9d4e1a20",
		OperationName: "TopProducts",
		Scopes:        []string{"read:reviews", "read:products"}, // order irrelevant
	})
	fmt.Println("deterministic:", key == again)

	// Any differing input produces a different key.
	other := builder.Build(keys.Params{
		QueryHash:     "9d4e1a20",
		OperationName: "TopProducts",
	})
	fmt.Println("scope-sensitive:", key != other)
	// Output:
	// deterministic: true
	// scope-sensitive: true
}
