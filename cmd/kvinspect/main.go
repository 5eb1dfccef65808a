package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/prefhubapp/prefhub-server/internal/domain"
	"github.com/prefhubapp/prefhub-server/internal/settings"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/PrefHub/data/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Backing Store Inspection ===")
	fmt.Println()

	var raw []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(settings.Key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			fmt.Printf("No record at %q (store not yet initialized)\n", settings.Key)
			return
		}
		log.Fatalf("Failed to read settings record: %v", err)
	}

	fmt.Printf("Key: %s\n", settings.Key)
	fmt.Printf("Raw: %d bytes\n", len(raw))
	fmt.Println()

	var current domain.Settings
	if err := json.Unmarshal(raw, &current); err != nil {
		fmt.Printf("Record is not valid JSON: %v\n", err)
		fmt.Printf("Bytes: %q\n", raw)
		return
	}

	pretty, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		log.Fatalf("Failed to format settings: %v", err)
	}
	fmt.Println(string(pretty))

	// Dump any other keys so stray records are visible too.
	fmt.Println()
	fmt.Println("=== Other Keys ===")
	otherCount := 0
	err = db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if key == settings.Key {
				continue
			}
			fmt.Printf("  %s\n", key)
			otherCount++
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to iterate keys: %v", err)
	}
	if otherCount == 0 {
		fmt.Println("  (none)")
	}
}
