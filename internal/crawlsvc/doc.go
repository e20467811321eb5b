// Package crawlsvc groups the crawl backends that implement harvest.CrawlBackend:
// firecrawl talks to a Firecrawl v2 service, local crawls in process with colly.
package crawlsvc
