package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/asdine/storm/v3"
	"github.com/mdouchement/unionboard/internal/database"
	"github.com/mdouchement/unionboard/internal/model"
	"github.com/mdouchement/unionboard/pkg/stormsql"
	"github.com/oleiade/reflections"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// go run tools/console/main.go unionboard.db " SELECT count(*) FROM records WHERE Collection = 'events' AND UpdatedAt > '2024-02-16 20:52:55';  "
// go run tools/console/main.go unionboard.db " SELECT * FROM objects WHERE Bucket = 'documents' ORDER BY Size DESC LIMIT 5;  "

func main() {
	c := &cobra.Command{
		Use:   "console",
		Short: "SQL console for unionboard database",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			//
			//
			sc, err := stormsql.ParseSelect(args[1])
			if err != nil {
				return err
			}

			//
			//
			fmt.Println("Opening", args[0])
			db, err := storm.Open(args[0], database.StormCodec)
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			//
			// Prepare request
			//

			query := db.Select(sc.Matcher)
			if sc.Skip > 0 {
				query.Skip(sc.Skip)
			}
			if sc.Limit > 0 {
				query.Limit(sc.Limit)
			}
			if len(sc.OrderBy) > 0 {
				query.OrderBy(sc.OrderBy...)
				if sc.OrderByReversed {
					query.Reverse()
				}
			}

			// Execute

			if sc.Count {
				return count(sc, query)
			}

			return list(sc, query)
		},
	}

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func count(sc *stormsql.SelectClause, query storm.Query) error {
	var records any
	switch sc.Tablename {
	case "records":
		records = &model.Record{}
	case "objects":
		records = &model.Object{}
	default:
		return errors.Errorf("unknown tablename: %s", sc.Tablename)
	}

	n, err := query.Count(records)

	if err != nil {
		return errors.Wrap(err, "could not perform query")
	}

	fmt.Println("Count:", n)

	return nil
}

func list(sc *stormsql.SelectClause, query storm.Query) error {
	switch sc.Tablename {
	case "records":
		return find[model.Record](query, sc.SelectedFields)
	case "objects":
		return find[model.Object](query, sc.SelectedFields)
	default:
		return errors.Errorf("unknown tablename: %s", sc.Tablename)
	}
}

func find[T any](query storm.Query, fields []string) error {
	var records []*T
	err := query.Find(&records)
	if err == storm.ErrNotFound {
		fmt.Println("[]")
		return nil
	}

	if err != nil {
		return errors.Wrap(err, "could not perform query")
	}

	if len(fields) == 0 {
		jsondump(records)
		return nil
	}

	// SELECT Collection,UpdatedAt
	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := map[string]any{}
		for _, field := range fields {
			if row[field], err = reflections.GetField(record, field); err != nil {
				return errors.Wrapf(err, "unknown field %s", field)
			}
		}
		rows = append(rows, row)
	}
	jsondump(rows)

	return nil
}

func jsondump(v any) {
	d, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Println(string(d))
}
