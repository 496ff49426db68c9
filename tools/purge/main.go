package main

import (
	"fmt"
	"log"

	"github.com/mdouchement/unionboard/internal/database"
	"github.com/muesli/coral"
	"github.com/pkg/errors"
)

func main() {
	c := &coral.Command{
		Use:   "purge DATABASE COLLECTION",
		Short: "Remove every record of a collection from the database",
		Args:  coral.ExactArgs(2),
		RunE: func(_ *coral.Command, args []string) error {
			//
			//
			fmt.Println("Opening", args[0])
			db, err := database.StormOpen(args[0])
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			// Deleting collection's records
			n, err := db.DeleteRecords(args[1])
			if err != nil && !db.IsNotFound(err) {
				return errors.Wrap(err, "delete records")
			}
			if n == 0 {
				fmt.Println("No record for this collection")
				return nil
			}

			fmt.Println(n, "records removed")
			fmt.Println("Run `unionboard sweep` to remove their attachments")

			return nil
		},
	}

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
