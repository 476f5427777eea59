package testutil

// publicationData holds all data for a publication to be inserted.
type publicationData struct {
	interfaces []string
	attrs      map[string]any
}

// PublicationOption configures a publication.
type PublicationOption func(*publicationData)

// Interfaces adds interface names besides the first one.
func Interfaces(names ...string) PublicationOption {
	return func(p *publicationData) { p.interfaces = append(p.interfaces, names...) }
}

// Attr sets one attribute.
func Attr(key string, value any) PublicationOption {
	return func(p *publicationData) { p.attrs[key] = value }
}

// Region sets the region attribute.
func Region(region string) PublicationOption {
	return Attr("region", region)
}

// Ranking sets the service.ranking attribute.
func Ranking(n int64) PublicationOption {
	return Attr("service.ranking", n)
}

// Tags sets a multi-valued tags attribute.
func Tags(tags ...string) PublicationOption {
	return func(p *publicationData) {
		vals := make([]any, len(tags))
		for i, tag := range tags {
			vals[i] = tag
		}
		p.attrs["tags"] = vals
	}
}
