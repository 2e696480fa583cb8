package adblock

// builtinDomains is a set of well-known ad and tracking domains, loaded for
// the "builtin" source. A request is blocked when its host or any parent
// domain is listed.
var builtinDomains = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"google-analytics.com",
	"googletagmanager.com",
	"googletagservices.com",
	"facebook.net",
	"adnxs.com",
	"adsrvr.org",
	"amazon-adsystem.com",
	"criteo.com",
	"criteo.net",
	"outbrain.com",
	"taboola.com",
	"moatads.com",
	"pubmatic.com",
	"rubiconproject.com",
	"scorecardresearch.com",
	"quantserve.com",
	"hotjar.com",
	"mixpanel.com",
	"segment.io",
	"analytics.twitter.com",
	"ads-twitter.com",
	"chartbeat.com",
	"chartbeat.net",
	"zedo.com",
	"media.net",
	"contextweb.com",
	"bidswitch.net",
	"openx.net",
	"casalemedia.com",
	"demdex.net",
	"krxd.net",
	"bluekai.com",
	"exelator.com",
	"mathtag.com",
	"serving-sys.com",
	"eyeota.net",
	"agkn.com",
	"rlcdn.com",
	"sharethis.com",
	"addthis.com",
	"consensu.org",
}
