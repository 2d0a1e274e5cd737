package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderShareTemplate(t *testing.T) {
	data := ShareData{
		AppName:      "Margin",
		UserName:     "Sam",
		GranterName:  "Morgan Reyes",
		ResourceType: "document",
		Title:        "Field Notes on Moths",
		Level:        "write",
	}

	html, err := renderTemplate(shareEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Margin") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Morgan Reyes") {
		t.Error("template should contain granter name")
	}
	if !strings.Contains(html, "Field Notes on Moths") {
		t.Error("template should contain resource title")
	}
	if !strings.Contains(html, "write") {
		t.Error("template should contain granted level")
	}
}

func TestRenderGroupInviteTemplate(t *testing.T) {
	data := GroupInviteData{
		AppName:     "Margin",
		UserName:    "Sam",
		InviterName: "Morgan Reyes",
		GroupName:   "Lepidoptera Reading Club",
	}

	html, err := renderTemplate(groupInviteEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Margin") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Morgan Reyes") {
		t.Error("template should contain inviter name")
	}
	if !strings.Contains(html, "Lepidoptera Reading Club") {
		t.Error("template should contain group name")
	}
}
