package webpage

// prelude installs a small DOM over the laid-out elements. Go provides
// __elements (JSON), __view(), __scrolled(x, y), __event(index, type),
// __bridge() and __log(msg) before it runs.
const prelude = `
var window = this;

var __data = JSON.parse(__elements);

function Element(d, i) {
  this.__d = d;
  this.__i = i;
  this.tagName = d.tag;
  this.nodeName = d.tag;
  this.className = d.attrs['class'] || '';
  this.id = d.attrs.id || '';
  this.href = d.attrs.href || '';
  this.src = d.attrs.src || '';
  this.paused = true;
  this.style = {};
  this.textContent = '';
  this.offsetWidth = d.w;
  this.offsetHeight = d.h;
}
Element.prototype.getBoundingClientRect = function() {
  var left = this.__d.x - window.scrollX;
  var top = this.__d.y - window.scrollY;
  return {left: left, top: top, right: left + this.__d.w, bottom: top + this.__d.h,
          x: left, y: top, width: this.__d.w, height: this.__d.h};
};
Element.prototype.getAttribute = function(name) {
  var v = this.__d.attrs[name];
  return v === undefined ? null : v;
};
Element.prototype.hasAttribute = function(name) {
  return this.__d.attrs[name] !== undefined;
};
Element.prototype.dispatchEvent = function(ev) {
  if (this.__i >= 0) {
    __event(this.__i, ev.type);
  }
  return true;
};
Element.prototype.addEventListener = function() {};
Element.prototype.removeEventListener = function() {};
Element.prototype.appendChild = function(child) {
  __mutated('childList', this, null);
  return child;
};
Element.prototype.setAttribute = function(name, value) {
  this.__d.attrs[name] = String(value);
  __mutated('attributes', this, name);
};
Element.prototype.play = function() {
  this.paused = false;
  __event(this.__i, 'play');
};
Element.prototype.pause = function() {
  this.paused = true;
};

var __nodes = [];
for (var __i = 0; __i < __data.length; __i++) {
  __nodes.push(new Element(__data[__i], __i));
}

function __page() {
  var v = __view();
  return new Element({tag: 'BODY', attrs: {}, x: 0, y: 0, w: v.pageWidth, h: v.pageHeight}, -1);
}

var __simple = /^([a-zA-Z]*)(?:\[([a-zA-Z-]+)(?:(\*?=)"([^"]*)")?\])?$/;

function __matchSimple(sel, d) {
  var m = __simple.exec(sel);
  if (!m) {
    return false;
  }
  if (m[1] && m[1].toUpperCase() !== d.tag) {
    return false;
  }
  if (m[2]) {
    var v = d.attrs[m[2]];
    if (v === undefined) {
      return false;
    }
    if (m[3] === '=' && v !== m[4]) {
      return false;
    }
    if (m[3] === '*=' && v.indexOf(m[4]) < 0) {
      return false;
    }
  }
  return true;
}

function __matches(sel, i) {
  var parts = sel.split(/\s+/);
  if (!__matchSimple(parts[parts.length - 1], __data[i])) {
    return false;
  }
  var p = __data[i].parent;
  for (var k = parts.length - 2; k >= 0; k--) {
    while (p >= 0 && !__matchSimple(parts[k], __data[p])) {
      p = __data[p].parent;
    }
    if (p < 0) {
      return false;
    }
    p = __data[p].parent;
  }
  return true;
}

var document = {
  title: '',
  head: new Element({tag: 'HEAD', attrs: {}, x: 0, y: 0, w: 0, h: 0}, -1),
  querySelectorAll: function(selector) {
    var sels = selector.split(',');
    var out = [];
    for (var i = 0; i < __nodes.length; i++) {
      for (var s = 0; s < sels.length; s++) {
        if (__matches(sels[s].trim(), i)) {
          out.push(__nodes[i]);
          break;
        }
      }
    }
    return out;
  },
  querySelector: function(selector) {
    var all = document.querySelectorAll(selector);
    return all.length > 0 ? all[0] : null;
  },
  getElementsByTagName: function(tag) {
    var t = tag.toUpperCase();
    var out = [];
    for (var i = 0; i < __nodes.length; i++) {
      if (__nodes[i].tagName === t) {
        out.push(__nodes[i]);
      }
    }
    return out;
  },
  elementFromPoint: function(x, y) {
    var v = __view();
    if (x < 0 || y < 0 || x >= v.width || y >= v.height) {
      return null;
    }
    var px = x + window.scrollX;
    var py = y + window.scrollY;
    var best = null;
    var bestArea = 0;
    for (var i = 0; i < __data.length; i++) {
      var d = __data[i];
      if (d.w <= 0 || d.h <= 0 || px < d.x || px >= d.x + d.w || py < d.y || py >= d.y + d.h) {
        continue;
      }
      var area = d.w * d.h;
      if (best === null || area <= bestArea) {
        best = __nodes[i];
        bestArea = area;
      }
    }
    return best || __page();
  },
  createElement: function(tag) {
    return new Element({tag: tag.toUpperCase(), attrs: {}, x: 0, y: 0, w: 0, h: 0}, -1);
  }
};

Object.defineProperty(document, 'body', {get: __page});
Object.defineProperty(document, 'documentElement', {get: __page});
Object.defineProperty(Element.prototype, 'scrollHeight', {get: function() { return this.offsetHeight; }});
Object.defineProperty(Element.prototype, 'scrollWidth', {get: function() { return this.offsetWidth; }});

Object.defineProperty(window, 'innerWidth', {get: function() { return __view().width; }});
Object.defineProperty(window, 'innerHeight', {get: function() { return __view().height; }});

window.scrollX = 0;
window.scrollY = 0;
window.scrollTo = function(x, y) {
  var v = __view();
  window.scrollX = Math.max(0, Math.min(x, v.pageWidth - v.width));
  window.scrollY = Math.max(0, Math.min(y, v.pageHeight - v.height));
  __scrolled(window.scrollX, window.scrollY);
};

window.getComputedStyle = function(el) {
  var style = (el.__d.attrs.style || '').toLowerCase();
  var m = /position\s*:\s*([a-z]+)/.exec(style);
  var hidden = /display\s*:\s*none/.test(style);
  return {
    position: m ? m[1] : 'static',
    display: hidden ? 'none' : 'block',
    visibility: 'visible'
  };
};

function MouseEvent(type, opts) {
  this.type = type;
  this.clientX = opts && opts.clientX;
  this.clientY = opts && opts.clientY;
}
function PointerEvent(type, opts) {
  MouseEvent.call(this, type, opts);
}
// Observers see every mutation made through the shim regardless of target.
var __observers = [];
function __mutated(type, target, name) {
  var list = __observers.slice();
  for (var i = 0; i < list.length; i++) {
    var o = list[i].options;
    if (type === 'childList' && !o.childList) {
      continue;
    }
    if (type === 'attributes') {
      if (!o.attributes || (o.attributeFilter && o.attributeFilter.indexOf(name) < 0)) {
        continue;
      }
    }
    list[i].callback([{type: type, target: target, attributeName: name}], list[i]);
  }
}
function MutationObserver(callback) {
  this.callback = callback;
  this.options = {};
}
MutationObserver.prototype.observe = function(target, options) {
  this.options = options || {};
  if (__observers.indexOf(this) < 0) {
    __observers.push(this);
  }
};
MutationObserver.prototype.disconnect = function() {
  var i = __observers.indexOf(this);
  if (i >= 0) {
    __observers.splice(i, 1);
  }
};

var console = {
  log: function(msg) { __log(String(msg)); },
  error: function(msg) { __log(String(msg)); }
};
`
