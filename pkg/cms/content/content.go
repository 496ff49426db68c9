// Package content declares the content kinds managed by the union website.
package content

import (
	"strings"
	"time"

	"github.com/mdouchement/unionboard/pkg/cms"
)

type (
	// An Event is a scheduled union activity shown in the calendar.
	Event struct {
		cms.Base
		Title            string `json:"title"             cms:"required,search"`
		Description      string `json:"description"       cms:"search"`
		Date             string `json:"date"              cms:"required,date"`
		Time             string `json:"time"              cms:"time"`
		Location         string `json:"location"          cms:"search"`
		Type             string `json:"type"              cms:"category"`
		ImageURL         string `json:"image_url"         cms:"attachment=image"`
		RegistrationOpen bool   `json:"registration_open"`
	}

	// A Notice is an announcement, optionally flagged as urgent.
	Notice struct {
		cms.Base
		Title    string `json:"title"     cms:"required,search"`
		Content  string `json:"content"   cms:"required,search"`
		Date     string `json:"date"      cms:"required"`
		Category string `json:"category"  cms:"category"`
		IsUrgent bool   `json:"is_urgent"`
	}

	// A LibraryDocument is a course document of the library.
	LibraryDocument struct {
		cms.Base
		Title       string `json:"title"       cms:"required,search"`
		Description string `json:"description" cms:"search"`
		Author      string `json:"author"      cms:"search"`
		Course      string `json:"course"      cms:"search"`
		Year        string `json:"year"`
		Type        string `json:"type"        cms:"category"`
		PDFURL      string `json:"pdf_url"     cms:"required,attachment=pdf"`
	}

	// A BlogPost is an article of the union blog.
	BlogPost struct {
		cms.Base
		Title    string   `json:"title"     cms:"required,search"`
		Excerpt  string   `json:"excerpt"`
		Content  string   `json:"content"   cms:"required,search"`
		Author   string   `json:"author"    cms:"search"`
		Tags     []string `json:"tags"      cms:"search"`
		Status   string   `json:"status"    cms:"category"`
		ImageURL string   `json:"image_url" cms:"attachment=image"`
	}

	// A JudicialDecision is a court ruling published for the members.
	JudicialDecision struct {
		cms.Base
		Title        string `json:"title"         cms:"required,search"`
		Court        string `json:"court"         cms:"search"`
		DecisionDate string `json:"decision_date"`
		Summary      string `json:"summary"       cms:"search"`
		Category     string `json:"category"      cms:"category"`
		PDFURL       string `json:"pdf_url"       cms:"required,attachment=pdf"`
	}

	// A CommunityMember is a partner or notable member of the community.
	CommunityMember struct {
		cms.Base
		Name     string `json:"name"     cms:"required,search"`
		Role     string `json:"role"     cms:"search"`
		Company  string `json:"company"  cms:"search"`
		Category string `json:"category" cms:"category"`
		Website  string `json:"website"`
		LogoURL  string `json:"logo_url" cms:"attachment=logo"`
	}

	// A NewsletterSubscriber is an email address subscribed to the newsletter.
	NewsletterSubscriber struct {
		cms.Base
		Email  string `json:"email"  cms:"required,search"`
		Name   string `json:"name"   cms:"search"`
		Status string `json:"status" cms:"category"`
	}

	// A Suggestion is a message left by a visitor in the suggestion box.
	Suggestion struct {
		cms.Base
		Name    string `json:"name"    cms:"search"`
		Email   string `json:"email"`
		Subject string `json:"subject" cms:"required,search"`
		Message string `json:"message" cms:"required,search"`
		Status  string `json:"status"  cms:"category"`
	}
)

// Kind declarations.
var (
	Events                = cms.Define[Event]("events", cms.SortBy("Date"), cms.Ascending())
	Notices               = cms.Define[Notice]("notices", cms.SortBy("Date"))
	LibraryDocuments      = cms.Define[LibraryDocument]("library_documents")
	BlogPosts             = cms.Define[BlogPost]("blog_posts")
	JudicialDecisions     = cms.Define[JudicialDecision]("judicial_decisions", cms.SortBy("DecisionDate"))
	CommunityMembers      = cms.Define[CommunityMember]("community_members", cms.SortBy("Name"), cms.Ascending())
	NewsletterSubscribers = cms.Define[NewsletterSubscriber]("newsletter_subscribers", cms.PublicCreate())
	Suggestions           = cms.Define[Suggestion]("suggestions", cms.PublicCreate())
)

// A Collection describes a remote collection independently of its Go type.
type Collection struct {
	Name         string
	PublicCreate bool
	Attachments  map[string]cms.AttachmentClass
}

// Collections returns the description of every content kind, sorted by name.
func Collections() []Collection {
	return []Collection{
		describe(BlogPosts),
		describe(CommunityMembers),
		describe(Events),
		describe(JudicialDecisions),
		describe(LibraryDocuments),
		describe(NewsletterSubscribers),
		describe(Notices),
		describe(Suggestions),
	}
}

// Lookup returns the description of the named collection.
func Lookup(name string) (Collection, bool) {
	for _, c := range Collections() {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

func describe[T cms.Entity](kind cms.Kind[T]) Collection {
	return Collection{
		Name:         kind.Collection,
		PublicCreate: kind.IsPublic(cms.OpCreate),
		Attachments:  kind.Attachments(),
	}
}

// NoticesByUrgency returns the notices with the urgent ones first, keeping the order of each group.
func NoticesByUrgency(notices []Notice) []Notice {
	return cms.Prioritize(notices, func(n Notice) bool {
		return n.IsUrgent
	})
}

// Upcoming returns the events happening on or after the day of now, in snapshot order.
// Events with an unparseable date are omitted.
func Upcoming(events []Event, now time.Time) []Event {
	today := now.Format("2006-01-02")

	result := make([]Event, 0, len(events))
	for _, e := range events {
		day, ok := isoDay(e.Date, now.Location())
		if ok && day >= today {
			result = append(result, e)
		}
	}
	return result
}

func isoDay(date string, loc *time.Location) (string, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", false
	}

	slots := cms.Project(Events, []Event{{Date: date, Time: "00:00"}}, cms.Calendar{Location: loc})
	if len(slots) == 0 {
		return "", false
	}
	return slots[0].Start.Format("2006-01-02"), true
}
