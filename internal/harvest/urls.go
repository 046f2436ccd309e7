package harvest

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/user/listing-harvester/internal/domain"
)

// BuildURL returns the catalog URL for one page of a region's rental listings.
func BuildURL(baseURL string, region domain.Region, filter domain.Filter, page int) (string, error) {
	if r, ok := domain.ParseRegion(string(region)); !ok || r != region {
		return "", &ConfigurationError{Field: "region", Value: string(region)}
	}
	if f, ok := domain.ParseFilter(string(filter)); !ok || f != filter {
		return "", &ConfigurationError{Field: "furnishing filter", Value: string(filter)}
	}
	if page < 1 {
		return "", &ConfigurationError{Field: "page", Value: strconv.Itoa(page)}
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", &ConfigurationError{Field: "base URL", Value: baseURL}
	}

	path := fmt.Sprintf("%s/to-rent/property/%s/", base.Path, region)
	if page > 1 {
		path += fmt.Sprintf("page-%d/", page)
	}
	u := url.URL{Scheme: base.Scheme, Host: base.Host, Path: path}
	if filter != domain.FilterAll {
		u.RawQuery = url.Values{"furnishing_status": {string(filter)}}.Encode()
	}
	return u.String(), nil
}

// TotalPages converts a discovered listing count into the number of pages to visit.
func TotalPages(count, pageSize int) int {
	if count < 0 {
		count = 0
	}
	return count/pageSize + 1
}
