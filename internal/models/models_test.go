package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGuest(t *testing.T) {
	assert.True(t, (&User{Email: "guest-1718000000000@quipe.guest"}).IsGuest())
	assert.False(t, (&User{Email: "guest-abc@quipe.guest"}).IsGuest())
	assert.False(t, (&User{Email: "alice@example.com"}).IsGuest())
}

func TestSortSocialLinksNumeric(t *testing.T) {
	links := []SocialLink{{Order: "10"}, {Order: "x"}, {Order: "2"}, {Order: " 1 "}}
	SortSocialLinks(links)
	assert.Equal(t, []string{" 1 ", "2", "10", "x"}, []string{links[0].Order, links[1].Order, links[2].Order, links[3].Order})
}

func TestPublicName(t *testing.T) {
	name := "zed"
	assert.Equal(t, "zed", (&User{Username: &name}).PublicName())
	assert.Equal(t, "Zed Z", (&User{Username: &name, DisplayName: "Zed Z"}).PublicName())
}
