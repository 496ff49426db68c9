//
// libub is the client of the unionboard API. It implements the cms collaborators (Backend, ObjectStorage and Notifier).
//

// Create client
//
//	client, err := libub.NewDefaultClient("https://union.example.org")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Authenticate
//
//	err = client.Login(ctx, "admin@union.example.org", "12345678")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Read a collection
//
//	records, err := client.Select(ctx, "notices", "date", false)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Upload a file
//
//	err = client.Upload(ctx, "documents", "01HQ3Z5C8Y6V0A7M9P2T4K1XWB.pdf", "application/pdf", f, size)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(client.PublicURL("documents", "01HQ3Z5C8Y6V0A7M9P2T4K1XWB.pdf"))
//
// Listen to changes
//
//	notifications, err := client.Listen(ctx, "notices")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for n := range notifications {
//		fmt.Println(n.Type, n.ID)
//	}
package libub
