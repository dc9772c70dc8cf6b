package sandbox

// preludeJS defines the HTTP/URL globals the execution environment
// exposes. It runs before the scrub pass; the classes capture the Go
// helpers and the URI codecs in closure scope, so they keep working
// after the scrub removes the underlying globals.
const preludeJS = `
(function(g, parseURL, encodeUTF8, decodeUTF8, encodeURIComponent, decodeURIComponent) {
	'use strict';

	class URLSearchParams {
		constructor(init) {
			this._pairs = [];
			if (typeof init === 'string') {
				let s = init;
				if (s.startsWith('?')) s = s.slice(1);
				if (s.length > 0) {
					for (const part of s.split('&')) {
						const idx = part.indexOf('=');
						if (idx < 0) {
							this._pairs.push([decodeURIComponent(part), '']);
						} else {
							const k = decodeURIComponent(part.slice(0, idx).replace(/\+/g, ' '));
							const v = decodeURIComponent(part.slice(idx + 1).replace(/\+/g, ' '));
							this._pairs.push([k, v]);
						}
					}
				}
			} else if (init && typeof init === 'object') {
				for (const k of Object.keys(init)) {
					this._pairs.push([k, String(init[k])]);
				}
			}
		}
		append(k, v) { this._pairs.push([String(k), String(v)]); }
		set(k, v) { this.delete(k); this.append(k, v); }
		get(k) { for (const p of this._pairs) { if (p[0] === k) return p[1]; } return null; }
		getAll(k) { return this._pairs.filter(function(p) { return p[0] === k; }).map(function(p) { return p[1]; }); }
		has(k) { return this.get(k) !== null; }
		delete(k) { this._pairs = this._pairs.filter(function(p) { return p[0] !== k; }); }
		forEach(fn) { for (const p of this._pairs) fn(p[1], p[0], this); }
		toString() {
			return this._pairs.map(function(p) {
				return encodeURIComponent(p[0]) + '=' + encodeURIComponent(p[1]);
			}).join('&');
		}
	}

	class URL {
		constructor(href, base) {
			const p = parseURL(String(href), base === undefined ? '' : String(base));
			if (!p) throw new TypeError('Invalid URL: ' + href);
			this.href = p.href;
			this.protocol = p.protocol;
			this.host = p.host;
			this.hostname = p.hostname;
			this.port = p.port;
			this.pathname = p.pathname;
			this.search = p.search;
			this.hash = p.hash;
			this.origin = p.origin;
			this.searchParams = new URLSearchParams(p.search);
		}
		toString() { return this.href; }
	}

	class Headers {
		constructor(init) {
			this._map = new Map();
			if (init instanceof Headers) {
				init.forEach((v, k) => { this.set(k, v); });
			} else if (init && typeof init === 'object') {
				for (const k of Object.keys(init)) this.set(k, init[k]);
			}
		}
		get(name) {
			const v = this._map.get(String(name).toLowerCase());
			return v === undefined ? null : v;
		}
		set(name, value) { this._map.set(String(name).toLowerCase(), String(value)); }
		has(name) { return this._map.has(String(name).toLowerCase()); }
		append(name, value) {
			const key = String(name).toLowerCase();
			const prev = this._map.get(key);
			this._map.set(key, prev === undefined ? String(value) : prev + ', ' + String(value));
		}
		delete(name) { this._map.delete(String(name).toLowerCase()); }
		forEach(fn) { for (const e of this._map) fn(e[1], e[0], this); }
	}

	class Response {
		constructor(body, init) {
			init = init || {};
			this._body = body === undefined || body === null ? '' : String(body);
			this.status = init.status === undefined ? 200 : init.status;
			this.statusText = init.statusText === undefined ? '' : String(init.statusText);
			this.headers = init.headers instanceof Headers ? init.headers : new Headers(init.headers);
		}
		get ok() { return this.status >= 200 && this.status < 300; }
		text() { return Promise.resolve(this._body); }
		json() { return Promise.resolve(JSON.parse(this._body)); }
	}

	class TextEncoder {
		constructor() { this.encoding = 'utf-8'; }
		encode(s) { return encodeUTF8(String(s)); }
	}

	class TextDecoder {
		constructor() { this.encoding = 'utf-8'; }
		decode(b) { return decodeUTF8(b); }
	}

	g.URL = URL;
	g.URLSearchParams = URLSearchParams;
	g.Headers = Headers;
	g.Response = Response;
	g.TextEncoder = TextEncoder;
	g.TextDecoder = TextDecoder;
	g.structuredClone = function(v) {
		if (v === undefined) return undefined;
		return JSON.parse(JSON.stringify(v));
	};
})(globalThis, __parseURL, __encodeUTF8, __decodeUTF8, encodeURIComponent, decodeURIComponent);
`

// scrubJS removes every global not on the curated allowlist. Escape
// vectors are closed by omission: what is not listed does not exist.
// The allowlist is injected as a JSON array.
const scrubJS = `
(function(allowedNames) {
	const g = globalThis;
	const allowed = new Set(allowedNames);
	for (const name of Object.getOwnPropertyNames(g)) {
		if (allowed.has(name)) continue;
		try { g[name] = undefined; } catch (e) {}
		try { delete g[name]; } catch (e) {}
	}
})(%s);
`

// allowedGlobals is the complete set of names visible to handler code.
// The error constructors stay so generated try/catch paths can build and
// inspect errors.
var allowedGlobals = []string{
	"JSON", "Math", "String", "Number", "Boolean", "Array", "Object",
	"Map", "Set", "Date", "RegExp",
	"parseInt", "parseFloat", "isNaN", "isFinite",
	"structuredClone", "Promise",
	"URL", "URLSearchParams", "TextEncoder", "TextDecoder",
	"Headers", "Response",
	"fetch", "console", "args",
	"Error", "TypeError", "RangeError", "SyntaxError",
	"undefined", "NaN", "Infinity",
}
