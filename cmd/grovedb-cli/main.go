// Command grovedb-cli is a small operator tool over a grove.Grove,
// grounded on the teacher's cmd/checkpeer and cmd/indexer shape:
// os.Args[1] picks a subcommand (checkpeer's "Usage: checkpeer
// <peer-id>" dispatch), and each subcommand's own flags are parsed with
// the standard flag package (indexer's -storage/-data-dir/-log-level
// style), with log.Fatalf on any setup failure.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/grove"
	"github.com/dashpay/grovedb/query"
	"github.com/dashpay/grovedb/storage/badgerstore"

	"github.com/rs/zerolog"
)

func usage() {
	fmt.Println("Usage: grovedb-cli <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  insert    -data-dir DIR -key KEY -value VALUE  [-path SEG,SEG,...]")
	fmt.Println("  get       -data-dir DIR -key KEY                [-path SEG,SEG,...]")
	fmt.Println("  delete    -data-dir DIR -key KEY                [-path SEG,SEG,...]")
	fmt.Println("  root-hash -data-dir DIR                          [-path SEG,SEG,...]")
	fmt.Println("  query     -data-dir DIR -from KEY -to KEY        [-path SEG,SEG,...]")
	os.Exit(1)
}

func splitPath(raw string) [][]byte {
	if raw == "" {
		return nil
	}
	var out [][]byte
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, []byte(raw[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func openGrove(dataDir string) (*grove.Grove, *badgerstore.Store) {
	store, err := badgerstore.New(badgerstore.Options{Path: dataDir, Logger: nopLogger()})
	if err != nil {
		log.Fatalf("failed to open storage at %s: %v", dataDir, err)
	}
	g, err := grove.Open(grove.Options{Storage: store, Logger: nopLogger()})
	if err != nil {
		log.Fatalf("failed to open grove: %v", err)
	}
	return g, store
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func cmdInsert(args []string) {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "grove data directory")
	path := fs.String("path", "", "comma-separated subtree path")
	key := fs.String("key", "", "key to insert")
	value := fs.String("value", "", "item value to insert")
	fs.Parse(args)

	if *key == "" {
		log.Fatal("insert: -key is required")
	}

	g, store := openGrove(*dataDir)
	defer store.Close()

	if _, err := g.Insert(splitPath(*path), []byte(*key), element.NewItem([]byte(*value), nil)); err != nil {
		log.Fatalf("insert failed: %v", err)
	}
	log.Printf("inserted %q = %q", *key, *value)
}

func cmdGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "grove data directory")
	path := fs.String("path", "", "comma-separated subtree path")
	key := fs.String("key", "", "key to look up")
	fs.Parse(args)

	if *key == "" {
		log.Fatal("get: -key is required")
	}

	g, store := openGrove(*dataDir)
	defer store.Close()

	el, _, err := g.Get(splitPath(*path), []byte(*key))
	if err != nil {
		log.Fatalf("get failed: %v", err)
	}
	if el == nil {
		fmt.Println("(not found)")
		return
	}
	fmt.Printf("%s = %q (tag=%s)\n", *key, el.Bytes, el.Tag)
}

func cmdDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "grove data directory")
	path := fs.String("path", "", "comma-separated subtree path")
	key := fs.String("key", "", "key to delete")
	fs.Parse(args)

	if *key == "" {
		log.Fatal("delete: -key is required")
	}

	g, store := openGrove(*dataDir)
	defer store.Close()

	if _, err := g.Delete(splitPath(*path), []byte(*key)); err != nil {
		log.Fatalf("delete failed: %v", err)
	}
	log.Printf("deleted %q", *key)
}

func cmdRootHash(args []string) {
	fs := flag.NewFlagSet("root-hash", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "grove data directory")
	path := fs.String("path", "", "comma-separated subtree path")
	fs.Parse(args)

	g, store := openGrove(*dataDir)
	defer store.Close()

	root, _, err := g.RootHash(splitPath(*path))
	if err != nil {
		log.Fatalf("root-hash failed: %v", err)
	}
	fmt.Printf("%x\n", root)
}

func cmdQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "grove data directory")
	path := fs.String("path", "", "comma-separated subtree path")
	from := fs.String("from", "", "inclusive range start (empty for unbounded)")
	to := fs.String("to", "", "exclusive range end (empty for unbounded)")
	fs.Parse(args)

	g, store := openGrove(*dataDir)
	defer store.Close()

	var item query.Item
	switch {
	case *from != "" && *to != "":
		item = query.Range([]byte(*from), []byte(*to))
	case *from != "":
		item = query.RangeFrom([]byte(*from))
	case *to != "":
		item = query.RangeTo([]byte(*to))
	default:
		item = query.RangeFull()
	}

	pq := &query.PathQuery{
		Path:  splitPath(*path),
		Query: query.SizedQuery{Query: &query.Query{Items: []query.Item{item}, LeftToRight: true}},
	}
	results, _, err := g.Query(pq)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	for _, r := range results {
		fmt.Printf("%s = %q (tag=%s)\n", r.Key, r.Element.Bytes, r.Element.Tag)
	}
	log.Printf("%d results", len(results))
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "insert":
		cmdInsert(os.Args[2:])
	case "get":
		cmdGet(os.Args[2:])
	case "delete":
		cmdDelete(os.Args[2:])
	case "root-hash":
		cmdRootHash(os.Args[2:])
	case "query":
		cmdQuery(os.Args[2:])
	default:
		usage()
	}
}
