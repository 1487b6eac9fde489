package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// Maintenance CLI: dumps presence-hub rows from a badger directory.
// Defaults to the message keyspace; pass -prefix ntf: / sched: / user:
// for the other families. Index rows (msgid:, ntfid:, schedid:) only
// hold pointers to primary keys and are skipped.
func main() {
	dbPath := flag.String("db", "/tmp/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Key prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "ID", "From", "To", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			if isIndexKey(key) {
				continue
			}

			err := item.Value(func(v []byte) error {
				var row map[string]any
				if err := json.Unmarshal(v, &row); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}
				table.Append([]string{key, short(str(row, "id")), sender(row), target(row), detail(row)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func isIndexKey(key string) bool {
	for _, p := range []string{"msgid:", "ntfid:", "schedid:"} {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func str(row map[string]any, field string) string {
	if v, ok := row[field].(string); ok {
		return v
	}
	return ""
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sender(row map[string]any) string {
	if v := str(row, "sender_id"); v != "" {
		return v
	}
	return str(row, "display_name")
}

func target(row map[string]any) string {
	if v := str(row, "receiver_id"); v != "" {
		return v
	}
	return str(row, "target_id")
}

// detail picks the most telling column per row shape. Message content is
// sealed, so only its length is shown.
func detail(row map[string]any) string {
	if v := str(row, "title"); v != "" {
		return v
	}
	if v := str(row, "content"); v != "" {
		return fmt.Sprintf("<sealed %d bytes>", len(v))
	}
	if v := str(row, "post_id"); v != "" {
		return "post " + v
	}
	if v := str(row, "push_address"); v != "" {
		return v
	}
	return str(row, "type")
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
