package testutil

// WithStandardTestData adds the standard test dataset: two greeters in
// different regions, a clock that is also a greeter, and an unrelated store.
func (b *Builder) WithStandardTestData() *Builder {
	return b.
		WithPublication("com.acme.Greeter", Region("eu"), Ranking(10), Tags("blue", "green")).
		WithPublication("com.acme.Greeter", Region("us"), Ranking(1)).
		WithPublication("com.acme.Clock", Interfaces("com.acme.Greeter"), Region("eu")).
		WithPublication("com.acme.Store", Region("ap-south"), Attr("capacity", int64(512)))
}
