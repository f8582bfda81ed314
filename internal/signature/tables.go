package signature

// Technology categories used by the Technologies table.
const (
	CategoryWebServer = "web-server"
	CategoryBackend   = "backend"
	CategoryFrontend  = "frontend"
	CategoryAnalytics = "analytics"
	CategoryLibrary   = "library"
)

// DNSProviders maps nameserver hostnames to the operator running them.
var DNSProviders = Ruleset{
	Name: "dns-providers",
	Rules: []Rule{
		{Label: "Cloudflare", Match: HostContains("cloudflare")},
		{Label: "Amazon Route 53", Match: HostContains("awsdns")},
		{Label: "Azure DNS", Match: HostContains("azure-dns")},
		{Label: "Google Cloud DNS", Match: HostContains("googledomains", "ns-cloud")},
		{Label: "GoDaddy", Match: HostContains("domaincontrol", "godaddy")},
		{Label: "Namecheap", Match: HostContains("registrar-servers", "namecheaphosting")},
		{Label: "NS1", Match: HostContains("nsone")},
		{Label: "DNSimple", Match: HostContains("dnsimple")},
		{Label: "DNS Made Easy", Match: HostContains("dnsmadeeasy")},
		{Label: "UltraDNS", Match: HostContains("ultradns")},
		{Label: "Akamai", Match: HostContains("akam.net", "akamaiedge")},
		{Label: "Dyn", Match: HostContains("dynect")},
		{Label: "DigitalOcean", Match: HostContains("digitalocean")},
		{Label: "Linode", Match: HostContains("linode")},
		{Label: "Hetzner", Match: HostContains("hetzner", "your-server.de")},
		{Label: "OVH", Match: HostContains("ovh.net", "ovh.ca")},
		{Label: "Gandi", Match: HostContains("gandi.net")},
		{Label: "Name.com", Match: HostSuffix("name.com")},
		{Label: "Hover", Match: HostSuffix("hover.com")},
		{Label: "IONOS", Match: HostContains("ui-dns", "ionos")},
		{Label: "Squarespace", Match: HostContains("squarespacedns", "squarespace")},
		{Label: "Wix", Match: HostContains("wixdns")},
		{Label: "Vercel", Match: HostContains("vercel-dns")},
		{Label: "Netlify", Match: HostContains("netlify")},
		{Label: "Bluehost", Match: HostContains("bluehost")},
		{Label: "HostGator", Match: HostContains("hostgator")},
	},
}

// MailProviders maps MX hostnames to the mailbox or gateway provider.
var MailProviders = Ruleset{
	Name: "mail-providers",
	Rules: []Rule{
		{Label: "Google Workspace", Match: HostSuffix("google.com", "googlemail.com")},
		{Label: "Microsoft 365", Match: HostSuffix("outlook.com")},
		{Label: "Proofpoint", Match: HostSuffix("pphosted.com", "ppe-hosted.com")},
		{Label: "Mimecast", Match: HostContains("mimecast")},
		{Label: "Barracuda", Match: HostContains("barracudanetworks")},
		{Label: "Zoho Mail", Match: HostContains("zoho")},
		{Label: "Proton Mail", Match: HostContains("protonmail")},
		{Label: "Fastmail", Match: HostSuffix("messagingengine.com")},
		{Label: "GoDaddy", Match: HostSuffix("secureserver.net")},
		{Label: "Amazon SES", Match: HostContains("inbound-smtp")},
		{Label: "Mailgun", Match: HostContains("mailgun")},
		{Label: "iCloud Mail", Match: HostSuffix("icloud.com")},
		{Label: "Yandex", Match: HostContains("yandex")},
		{Label: "OVH", Match: HostContains("ovh.net")},
		{Label: "IONOS", Match: HostContains("ionos", "1and1")},
	},
}

// CMS identifies content management systems from headers, markup and the generator tag.
var CMS = Ruleset{
	Name: "cms",
	Rules: []Rule{
		{Label: "WordPress", Match: Any(BodyContains("wp-content", "wp-includes"), GeneratorContains("wordpress"), HeaderContains("Link", "api.w.org"))},
		{Label: "Drupal", Match: Any(BodyContains("drupal-settings-json", "/sites/default/files"), HeaderPresent("X-Drupal-Cache"), HeaderContains("X-Generator", "drupal"), GeneratorContains("drupal"))},
		{Label: "Joomla", Match: Any(BodyContains("/media/jui/", "com_content"), GeneratorContains("joomla"))},
		{Label: "Magento", Match: Any(BodyContains("mage/cookies", "/static/frontend/magento"), HeaderPresent("X-Magento-Cache-Debug"))},
		{Label: "PrestaShop", Match: Any(BodyContains("prestashop"), GeneratorContains("prestashop"))},
		{Label: "TYPO3", Match: Any(BodyContains("/typo3conf/", "/typo3temp/"), GeneratorContains("typo3"))},
		{Label: "Shopify", Match: Any(BodyContains("cdn.shopify.com"), HeaderPresent("X-ShopId"))},
		{Label: "Wix", Match: Any(BodyContains("static.wixstatic.com"), HeaderPresent("X-Wix-Request-Id"), GeneratorContains("wix.com"))},
		{Label: "Squarespace", Match: Any(BodyContains("static1.squarespace.com"), HeaderContains("Server", "squarespace"))},
		{Label: "Webflow", Match: Any(BodyContains("webflow.js", "data-wf-page"), GeneratorContains("webflow"))},
		{Label: "Ghost", Match: GeneratorContains("ghost")},
		{Label: "HubSpot CMS", Match: Any(BodyContains("hs-sites.com"), GeneratorContains("hubspot"))},
	},
}

// CommonlyTargetedCMS lists platforms with a large public plugin/exploit ecosystem.
var CommonlyTargetedCMS = map[string]bool{
	"WordPress":  true,
	"Joomla":     true,
	"Drupal":     true,
	"Magento":    true,
	"PrestaShop": true,
}

// CDNHeaders identifies a CDN from response headers. Evaluated before CDNMarkup.
var CDNHeaders = Ruleset{
	Name: "cdn-headers",
	Rules: []Rule{
		{Label: "Cloudflare", Match: Any(HeaderPresent("CF-Ray"), HeaderContains("Server", "cloudflare"))},
		{Label: "Amazon CloudFront", Match: Any(HeaderPresent("X-Amz-Cf-Id"), HeaderPresent("X-Amz-Cf-Pop"), HeaderContains("Via", "cloudfront"))},
		{Label: "Fastly", Match: Any(HeaderPresent("Fastly-Debug-Digest"), HeaderPresent("X-Fastly-Request-Id"), HeaderContains("X-Served-By", "cache-"))},
		{Label: "Akamai", Match: Any(HeaderPresent("X-Akamai-Transformed"), HeaderContains("Server", "akamaighost"))},
		{Label: "Azure Front Door", Match: HeaderPresent("X-Azure-Ref")},
		{Label: "Google Cloud CDN", Match: HeaderContains("Via", "google")},
		{Label: "BunnyCDN", Match: Any(HeaderPresent("CDN-PullZone"), HeaderContains("Server", "bunnycdn"))},
		{Label: "Sucuri", Match: HeaderPresent("X-Sucuri-Id")},
		{Label: "Imperva", Match: HeaderPresent("X-Iinfo")},
		{Label: "KeyCDN", Match: HeaderContains("Server", "keycdn")},
	},
}

// CDNMarkup identifies a CDN from asset hostnames referenced in markup.
var CDNMarkup = Ruleset{
	Name: "cdn-markup",
	Rules: []Rule{
		{Label: "Amazon CloudFront", Match: BodyContains(".cloudfront.net")},
		{Label: "Akamai", Match: BodyContains(".akamaihd.net", ".akamaized.net")},
		{Label: "Fastly", Match: BodyContains(".fastly.net", ".fastlylb.net")},
		{Label: "BunnyCDN", Match: BodyContains(".b-cdn.net")},
		{Label: "Azure CDN", Match: BodyContains(".azureedge.net")},
		{Label: "KeyCDN", Match: BodyContains(".kxcdn.com")},
	},
}

// Hosting identifies the hosting platform from headers and markup.
var Hosting = Ruleset{
	Name: "hosting",
	Rules: []Rule{
		{Label: "Vercel", Match: Any(HeaderPresent("X-Vercel-Id"), HeaderContains("Server", "vercel"))},
		{Label: "Netlify", Match: Any(HeaderPresent("X-NF-Request-Id"), HeaderContains("Server", "netlify"))},
		{Label: "GitHub Pages", Match: Any(HeaderPresent("X-GitHub-Request-Id"), HeaderContains("Server", "github.com"))},
		{Label: "Heroku", Match: Any(HeaderContains("Via", "vegur"), HeaderContains("Server", "heroku"))},
		{Label: "WP Engine", Match: Any(HeaderPresent("X-WPE-Request-Id"), HeaderContains("X-Powered-By", "wp engine"), BodyContains("wpengine"))},
		{Label: "Kinsta", Match: HeaderPresent("X-Kinsta-Cache")},
		{Label: "Pantheon", Match: HeaderPresent("X-Pantheon-Styx-Hostname")},
		{Label: "Shopify", Match: HeaderPresent("X-ShopId")},
		{Label: "Squarespace", Match: HeaderContains("Server", "squarespace")},
		{Label: "Wix", Match: HeaderPresent("X-Wix-Request-Id")},
		{Label: "Fly.io", Match: HeaderPresent("Fly-Request-Id")},
		{Label: "Render", Match: HeaderPresent("X-Render-Origin-Server")},
		{Label: "Amazon S3", Match: HeaderContains("Server", "amazons3")},
		{Label: "Google Cloud", Match: Any(HeaderContains("Server", "google frontend"), HeaderPresent("X-Cloud-Trace-Context"))},
		{Label: "Microsoft Azure", Match: Any(HeaderPresent("X-MS-Request-Id"), HeaderContains("X-Powered-By", "azure"))},
	},
}

// HeaderAllowList names the server/framework/library headers reported verbatim.
var HeaderAllowList = []string{
	"Server",
	"X-Powered-By",
	"X-Generator",
	"X-AspNet-Version",
	"X-AspNetMvc-Version",
	"X-Drupal-Cache",
	"X-Varnish",
	"X-Cache",
	"Via",
}

// Technologies is the free-form technology table: web servers, backends, frontends,
// analytics and common libraries.
var Technologies = Ruleset{
	Name: "technologies",
	Rules: []Rule{
		{Label: "nginx", Category: CategoryWebServer, Match: HeaderContains("Server", "nginx")},
		{Label: "Apache", Category: CategoryWebServer, Match: HeaderContains("Server", "apache")},
		{Label: "Microsoft IIS", Category: CategoryWebServer, Match: HeaderContains("Server", "microsoft-iis")},
		{Label: "LiteSpeed", Category: CategoryWebServer, Match: HeaderContains("Server", "litespeed")},
		{Label: "Caddy", Category: CategoryWebServer, Match: HeaderContains("Server", "caddy")},
		{Label: "OpenResty", Category: CategoryWebServer, Match: HeaderContains("Server", "openresty")},
		{Label: "Envoy", Category: CategoryWebServer, Match: HeaderContains("Server", "envoy")},

		{Label: "PHP", Category: CategoryBackend, Match: Any(HeaderContains("X-Powered-By", "php"), HeaderContains("Set-Cookie", "phpsessid"))},
		{Label: "ASP.NET", Category: CategoryBackend, Match: Any(HeaderContains("X-Powered-By", "asp.net"), HeaderPresent("X-AspNet-Version"), BodyContains("__viewstate"))},
		{Label: "Express", Category: CategoryBackend, Match: HeaderContains("X-Powered-By", "express")},
		{Label: "Ruby on Rails", Category: CategoryBackend, Match: Any(BodyContains(`name="csrf-param" content="authenticity_token"`), HeaderContains("X-Powered-By", "phusion passenger"))},
		{Label: "Django", Category: CategoryBackend, Match: Any(BodyContains("csrfmiddlewaretoken"), HeaderContains("Set-Cookie", "django_language"))},
		{Label: "Laravel", Category: CategoryBackend, Match: HeaderContains("Set-Cookie", "laravel_session")},
		{Label: "Java", Category: CategoryBackend, Match: HeaderContains("Set-Cookie", "jsessionid")},

		{Label: "React", Category: CategoryFrontend, Match: BodyContains("data-reactroot", "react-dom", "__next_data__")},
		{Label: "Next.js", Category: CategoryFrontend, Match: Any(BodyContains("__next_data__", "/_next/static"), HeaderContains("X-Powered-By", "next.js"))},
		{Label: "Vue.js", Category: CategoryFrontend, Match: BodyContains("data-v-app", "vue.min.js", "vue.global")},
		{Label: "Nuxt", Category: CategoryFrontend, Match: BodyContains("__nuxt", "/_nuxt/")},
		{Label: "Angular", Category: CategoryFrontend, Match: BodyContains("ng-version=", "ng-app")},
		{Label: "Svelte", Category: CategoryFrontend, Match: BodyContains("svelte-", "__sveltekit")},
		{Label: "Gatsby", Category: CategoryFrontend, Match: BodyContains("___gatsby")},

		{Label: "Google Analytics", Category: CategoryAnalytics, Match: BodyContains("google-analytics.com", "googletagmanager.com/gtag")},
		{Label: "Google Tag Manager", Category: CategoryAnalytics, Match: BodyContains("googletagmanager.com/gtm.js")},
		{Label: "Matomo", Category: CategoryAnalytics, Match: BodyContains("matomo.js", "piwik.js")},
		{Label: "Plausible", Category: CategoryAnalytics, Match: BodyContains("plausible.io/js")},
		{Label: "Hotjar", Category: CategoryAnalytics, Match: BodyContains("static.hotjar.com")},
		{Label: "Segment", Category: CategoryAnalytics, Match: BodyContains("cdn.segment.com")},
		{Label: "Meta Pixel", Category: CategoryAnalytics, Match: BodyContains("connect.facebook.net")},
		{Label: "HubSpot", Category: CategoryAnalytics, Match: BodyContains("js.hs-scripts.com")},

		{Label: "jQuery", Category: CategoryLibrary, Match: BodyContains("jquery.min.js", "jquery.js", "/jquery-")},
		{Label: "Bootstrap", Category: CategoryLibrary, Match: BodyContains("bootstrap.min.css", "bootstrap.min.js", "bootstrap.bundle")},
		{Label: "Font Awesome", Category: CategoryLibrary, Match: BodyContains("font-awesome", "fontawesome")},
		{Label: "Modernizr", Category: CategoryLibrary, Match: BodyContains("modernizr")},
		{Label: "reCAPTCHA", Category: CategoryLibrary, Match: BodyContains("google.com/recaptcha", "recaptcha/api.js")},
		{Label: "Lodash", Category: CategoryLibrary, Match: BodyContains("lodash.min.js")},
	},
}

// CloudProviders identifies public cloud compute from reverse-DNS names.
var CloudProviders = Ruleset{
	Name: "cloud-ptr",
	Rules: []Rule{
		{Label: "Amazon Web Services", Match: HostSuffix("amazonaws.com")},
		{Label: "Google Cloud", Match: HostSuffix("googleusercontent.com")},
		{Label: "Microsoft Azure", Match: HostSuffix("cloudapp.azure.com", "cloudapp.net")},
		{Label: "Oracle Cloud", Match: HostContains("oraclecloud")},
		{Label: "Alibaba Cloud", Match: HostContains("aliyun", "alibabacloud")},
		{Label: "IBM Cloud", Match: HostContains("softlayer", "ibmcloud")},
		{Label: "DigitalOcean", Match: HostContains("digitalocean")},
		{Label: "Linode", Match: HostContains("linodeusercontent", "linode")},
		{Label: "Vultr", Match: HostContains("vultr")},
	},
}

// Datacenters identifies dedicated/colocation hosting from reverse-DNS names.
var Datacenters = Ruleset{
	Name: "datacenter-ptr",
	Rules: []Rule{
		{Label: "Hetzner", Match: HostContains("your-server.de", "hetzner")},
		{Label: "OVH", Match: HostContains("ovh.net", "ovh.ca")},
		{Label: "Scaleway", Match: HostContains("scaleway", "online.net")},
		{Label: "Leaseweb", Match: HostContains("leaseweb")},
		{Label: "GoDaddy", Match: HostContains("secureserver.net")},
		{Label: "IONOS", Match: HostContains("1and1", "ionos", "kundenserver")},
		{Label: "Contabo", Match: HostContains("contabo")},
		{Label: "Rackspace", Match: HostContains("rackspace")},
		{Label: "Bluehost", Match: HostContains("bluehost")},
		{Label: "HostGator", Match: HostContains("hostgator", "websitewelcome")},
	},
}

// Regions maps provider region tokens in reverse-DNS names to a coarse region.
var Regions = Ruleset{
	Name: "regions-ptr",
	Rules: []Rule{
		{Label: "north_america", Match: HostContains("us-east", "us-west", "ca-central", "compute-1.amazonaws", ".iad", ".sjc", ".ord", ".dfw")},
		{Label: "south_america", Match: HostContains("sa-east", ".gru")},
		{Label: "europe", Match: HostContains("eu-west", "eu-central", "eu-north", "eu-south", "your-server.de", ".fra", ".ams", ".lhr", ".cdg")},
		{Label: "asia_pacific", Match: HostContains("ap-southeast", "ap-northeast", "ap-south", "ap-east", ".nrt", ".sin", ".syd", ".hkg")},
		{Label: "middle_east", Match: HostContains("me-south", "me-central", "il-central")},
		{Label: "africa", Match: HostContains("af-south")},
	},
}
