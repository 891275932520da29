package contract

// GoogleEventTime carries either a dateTime or, for all-day events, a date.
type GoogleEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// GoogleEvent is the Google Calendar event shape relayed by the sync endpoint.
type GoogleEvent struct {
	ID          string          `json:"id"`
	Summary     string          `json:"summary"`
	Start       GoogleEventTime `json:"start"`
	End         GoogleEventTime `json:"end"`
	Description string          `json:"description,omitempty"`
}

// OutlookDateTime is a Microsoft Graph dateTimeTimeZone value. DateTime has
// no offset; TimeZone names the zone it is expressed in.
type OutlookDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

// OutlookBody is the Graph itemBody of an event.
type OutlookBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content"`
}

// OutlookEvent is the Outlook Calendar event shape relayed by the sync endpoint.
type OutlookEvent struct {
	ID       string          `json:"id"`
	Subject  string          `json:"subject"`
	Start    OutlookDateTime `json:"start"`
	End      OutlookDateTime `json:"end"`
	Body     OutlookBody     `json:"body"`
	IsAllDay bool            `json:"isAllDay,omitempty"`
}

// GoogleSyncResult holds the events fetched from Google in one sync.
type GoogleSyncResult struct {
	Events []GoogleEvent `json:"events"`
	Count  int           `json:"count"`
}

// OutlookSyncResult holds the events fetched from Outlook in one sync.
type OutlookSyncResult struct {
	Events []OutlookEvent `json:"events"`
	Count  int            `json:"count"`
}

// SyncResults has one entry per connected provider.
type SyncResults struct {
	Google  *GoogleSyncResult  `json:"google,omitempty"`
	Outlook *OutlookSyncResult `json:"outlook,omitempty"`
}

// SyncResponse is returned by POST /api/calendar/sync.
type SyncResponse struct {
	Results SyncResults `json:"results"`
}
