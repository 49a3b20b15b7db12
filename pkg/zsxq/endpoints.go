package zsxq

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// DefaultBaseURL is the base URL of the zsxq web API
	DefaultBaseURL = "https://api.zsxq.com"

	// GroupsEndpoint lists the groups joined by the authenticated account
	GroupsEndpoint = "/v2/groups"

	// DefaultPageSize is the default topic page size
	DefaultPageSize = 20
)

// GroupsURL constructs the URL for listing joined groups
func GroupsURL(baseURL string) string {
	return baseURL + GroupsEndpoint
}

// TopicsURL constructs the URL for one page of a group's topics.
// endTime is the exclusive pagination cursor (ISO-8601 with offset);
// empty means the most recent page.
func TopicsURL(baseURL string, groupID int64, endTime string, count int) string {
	if count <= 0 {
		count = DefaultPageSize
	}

	params := url.Values{}
	params.Set("scope", "all")
	params.Set("count", strconv.Itoa(count))
	if endTime != "" {
		params.Set("end_time", endTime)
	}

	return fmt.Sprintf("%s/v2/groups/%d/topics?%s", baseURL, groupID, params.Encode())
}
