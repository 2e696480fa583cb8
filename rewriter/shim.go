package rewriter

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	headClose = regexp.MustCompile(`(?i)</head\s*>`)
	bodyOpen  = regexp.MustCompile(`(?i)<body(?:\s[^>]*)?>`)
)

// shimTemplate keeps runtime-issued requests inside the proxy. The two
// placeholders receive JSON string literals, which are valid JavaScript and
// cannot terminate the surrounding script element.
const shimTemplate = `<script>
(function(){
  var ORIGIN = __ORIGIN__;
  var BASE = __BASE__;
  var ASSET = ORIGIN + '/asset?url=';
  var PAGE = ORIGIN + '/proxy?url=';
  var DIRECT = /\.(png|jpe?g|gif|webp|svg|pdf)$/i;

  var toAbs = function(u){ try { return new URL(u, BASE).toString(); } catch (e) { return u; } };
  var unwrap = function(u){
    if (u.indexOf(ASSET) !== 0 && u.indexOf(PAGE) !== 0) return u;
    try { return new URL(u).searchParams.get('url') || u; } catch (e) { return u; }
  };
  var target = function(u){ return unwrap(toAbs(String(u))); };
  var toAsset = function(u){ return ASSET + encodeURIComponent(target(u)); };
  var toPage = function(u){ return PAGE + encodeURIComponent(target(u)); };

  var _fetch = window.fetch;
  if (_fetch) {
    window.fetch = function(input, init){
      try {
        if (typeof input === 'string' || input instanceof URL) input = toAsset(input);
        else if (input && input.url) input = new Request(toAsset(input.url), input);
      } catch (e) {}
      return _fetch.call(window, input, init);
    };
  }

  var _open = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function(method, url){
    var args = Array.prototype.slice.call(arguments);
    try { args[1] = toAsset(url); } catch (e) {}
    return _open.apply(this, args);
  };

  document.addEventListener('click', function(e){
    var a = e.target && e.target.closest && e.target.closest('a[href]');
    if (!a) return;
    var href = a.getAttribute('href');
    if (!href || href.charAt(0) === '#' || /^\s*javascript:/i.test(href)) return;
    e.preventDefault();
    var abs = target(href);
    var path = abs;
    try { path = new URL(abs).pathname; } catch (err) {}
    window.location.href = DIRECT.test(path) ? toAsset(abs) : toPage(abs);
  }, true);

  var _openWin = window.open;
  window.open = function(u, t, f){
    if (u === undefined || u === null || u === '') return _openWin.call(window, u, t, f);
    return _openWin.call(window, toPage(u), t, f);
  };

  var baseEl = document.createElement('base');
  baseEl.href = BASE;
  if (document.head) document.head.insertBefore(baseEl, document.head.firstChild);
})();
</script>`

// Shim returns the client script for a page served by origin whose true
// upstream URL is base.
func Shim(origin, base string) string {
	r := strings.NewReplacer(
		"__ORIGIN__", jsString(strings.TrimRight(origin, "/")),
		"__BASE__", jsString(base),
	)
	return r.Replace(shimTemplate)
}

// InjectShim places shim immediately before the closing head tag, or right
// after the opening body tag when there is no head, or in front of the whole
// document when neither exists.
func InjectShim(doc, shim string) string {
	if loc := headClose.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + shim + "\n" + doc[loc[0]:]
	}
	if loc := bodyOpen.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + "\n" + shim + doc[loc[1]:]
	}
	return shim + doc
}

// jsString encodes s as a JavaScript string literal. encoding/json escapes
// <, > and & as \u003c style escapes, so the literal is safe inside <script>.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
