package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AllModels lists every table owned by the service, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&RefreshToken{},
		&Project{},
		&ProjectMember{},
		&Channel{},
		&Schedule{},
		&Lead{},
		&CallbackRequest{},
		&ChatSession{},
		&ChatMessage{},
		&ABTest{},
		&ABTestVariant{},
		&UserVariant{},
		&ABTestExclusion{},
	}
}

func strPtr(s string) *string { return &s }

// SeedDemoData creates a demo project with channels, a weekly schedule, two
// leads and a chat conversation. Every insert is keyed by a natural key so
// running it again changes nothing.
func SeedDemoData(db *gorm.DB) (*Project, error) {
	var project Project
	if err := db.Where(Project{Name: "Demo Project"}).
		Attrs(Project{Timezone: "Europe/Kiev"}).
		FirstOrCreate(&project).Error; err != nil {
		return nil, fmt.Errorf("demo project: %w", err)
	}

	channels := []Channel{
		{Type: ChannelCall, Label: "Call us", Link: strPtr("tel:+380123456789"), Priority: 1, ShowInTop: true, Icon: strPtr("📞")},
		{Type: ChannelCallback, Label: "Request a call", Priority: 2, ShowInTop: true, Icon: strPtr("⏰")},
		{Type: ChannelMessenger, Label: "Telegram", Link: strPtr("https://t.me/your_bot"), Priority: 3, Icon: strPtr("💬")},
		{Type: ChannelMessenger, Label: "WhatsApp", Link: strPtr("https://wa.me/380123456789"), Priority: 4, Icon: strPtr("📱")},
		{Type: ChannelChat, Label: "Online chat", Priority: 5, Icon: strPtr("💭")},
		{Type: ChannelForm, Label: "Leave a request", Priority: 6, Icon: strPtr("📝")},
	}
	for i := range channels {
		ch := channels[i]
		ch.ProjectID = project.ID
		ch.IsActive = true
		if err := db.Where(Channel{ProjectID: project.ID, Type: ch.Type, Label: ch.Label}).
			Attrs(ch).
			FirstOrCreate(&channels[i]).Error; err != nil {
			return nil, fmt.Errorf("demo channel %s: %w", ch.Label, err)
		}
	}

	week := []Schedule{
		{Day: Monday, StartTime: "09:00", EndTime: "18:00", IsWorkingDay: true},
		{Day: Tuesday, StartTime: "09:00", EndTime: "18:00", IsWorkingDay: true},
		{Day: Wednesday, StartTime: "09:00", EndTime: "18:00", IsWorkingDay: true},
		{Day: Thursday, StartTime: "09:00", EndTime: "18:00", IsWorkingDay: true},
		{Day: Friday, StartTime: "09:00", EndTime: "18:00", IsWorkingDay: true},
		{Day: Saturday, StartTime: "10:00", EndTime: "16:00", IsWorkingDay: true},
		{Day: Sunday, StartTime: "10:00", EndTime: "16:00", IsWorkingDay: false},
	}
	for _, row := range week {
		row.ProjectID = project.ID
		var existing Schedule
		if err := db.Where(Schedule{ProjectID: project.ID, Day: row.Day}).
			Attrs(row).
			FirstOrCreate(&existing).Error; err != nil {
			return nil, fmt.Errorf("demo schedule %s: %w", row.Day, err)
		}
	}

	leads := []Lead{
		{
			Contact: "John Doe <john@example.com>",
			Message: "I want to add an online chat to my site. Phone: +1 555 123 4567",
			Attribution: Attribution{
				UTMSource: strPtr("demo"), UTMMedium: strPtr("seed"), UTMCampaign: strPtr("init_data"),
				PageURL: strPtr("https://example.com/"), ClientID: strPtr("demo-client-1"),
				DeviceType: "desktop", Language: "en",
			},
		},
		{
			Contact: "Jane Smith <jane@example.com>",
			Message: "Interested in pricing and integrations. Phone: +1 555 765 4321",
			Attribution: Attribution{
				UTMSource: strPtr("demo"), UTMMedium: strPtr("seed"), UTMCampaign: strPtr("init_data"),
				PageURL: strPtr("https://example.com/pricing"), ClientID: strPtr("demo-client-2"),
				DeviceType: "mobile", Language: "en",
			},
			Processed: true,
		},
	}
	for _, lead := range leads {
		lead.ProjectID = project.ID
		lead.ChannelID = channels[0].ID
		var existing Lead
		if err := db.Where(Lead{ProjectID: project.ID, ChannelID: lead.ChannelID, Contact: lead.Contact}).
			Attrs(lead).
			FirstOrCreate(&existing).Error; err != nil {
			return nil, fmt.Errorf("demo lead: %w", err)
		}
	}

	var session ChatSession
	if err := db.Where(ChatSession{ProjectID: project.ID, ClientID: "demo-chat-client"}).
		Attrs(ChatSession{PageURL: strPtr("https://example.com/"), DeviceType: "desktop", Language: "en"}).
		FirstOrCreate(&session).Error; err != nil {
		return nil, fmt.Errorf("demo chat session: %w", err)
	}

	var count int64
	if err := db.Model(&ChatMessage{}).Where("session_id = ?", session.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		conversation := []ChatMessage{
			{SessionID: session.ID, Kind: SenderVisitor, Content: "Hello! Can you help me install the widget?"},
			{SessionID: session.ID, Kind: SenderStaff, Content: "Hello! Sure. Are you on Nuxt or another framework?"},
			{SessionID: session.ID, Kind: SenderVisitor, Content: "Nuxt 3."},
			{SessionID: session.ID, Kind: SenderStaff, Content: "Great. I'll send the instructions and help with the integration."},
		}
		if err := db.Create(&conversation).Error; err != nil {
			return nil, fmt.Errorf("demo chat messages: %w", err)
		}
	}

	return &project, nil
}
