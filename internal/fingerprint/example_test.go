package fingerprint_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/objindex/internal/fingerprint"
	"github.com/dshills/objindex/internal/indexer"
)

func Example() {
	dir, err := os.MkdirTemp("", "fingerprint")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	object := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(object, []byte("object"), 0644); err != nil {
		panic(err)
	}

	version, err := indexer.LogicVersion(nil)
	if err != nil {
		panic(err)
	}
	h, err := fingerprint.NewHasher(version, fingerprint.DefaultCacheSize)
	if err != nil {
		panic(err)
	}

	oracle := fingerprint.NewOracle(nil)
	fmt.Println(oracle.IsIndexed(object, object+".zip", h.Fingerprint))
	// Output: false
}
