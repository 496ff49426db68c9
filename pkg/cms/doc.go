//
// cms keeps local caches of remote content collections in sync and manages their content.
//

// Declare a content kind
//
//	type Notice struct {
//		cms.Base
//		Title    string `json:"title"     cms:"required,search"`
//		Content  string `json:"content"   cms:"required,search"`
//		Date     string `json:"date"      cms:"required,date"`
//		IsUrgent bool   `json:"is_urgent"`
//	}
//
//	var Notices = cms.Define[Notice]("notices", cms.SortBy("Date"))
//
// Wire a store
//
//	client, err := libub.NewDefaultClient("https://union.example.org")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	feed := cms.NewChangeFeed(client)
//	pipeline := cms.NewAttachmentPipeline(client, nil, nil)
//
//	notices := cms.NewStore(Notices, cms.NewRemoteCollection[Notice](client, Notices.Collection),
//		cms.WithFeed(feed),
//		cms.WithAttachments(pipeline),
//		cms.WithAuthorizer(libub.NewTokenAuthorizer(client)),
//	)
//	defer notices.Close()
//
//	if err = notices.Open(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Search the cache
//
//	urgent := cms.Prioritize(cms.Filter(Notices, notices.Snapshot(), cms.Query{Text: "exam"}), func(n Notice) bool {
//		return n.IsUrgent
//	})
//
// Write through a form
//
//	form := cms.NewForm[Notice](notices, pipeline)
//	form.Set(Notice{Title: "Exam Reschedule", Content: "...", Date: "2025-03-01", IsUrgent: true})
//	if _, err = form.Submit(ctx); err != nil {
//		log.Fatal(err)
//	}
package cms
