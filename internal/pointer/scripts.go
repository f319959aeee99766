package pointer

import (
	"fmt"
	"strings"
)

// interactiveSelectors are queried in order when looking for an element
// under the pointer.
const interactiveSelectors = `['a[href]', 'button', '[role="button"]', '[onclick]', '[class*="play"]', '[class*="pause"]', '[class*="video"]', '[class*="nav"] a']`

// BridgeName is the host object the mutation observer reports to.
const BridgeName = "CsvtvBridge"

// elementAtScript returns the first interactive element containing the
// page-space point, with its top edge in page space and horizontal center.
func elementAtScript(x, pageY int) string {
	return fmt.Sprintf(`(function() {
  var x = %d;
  var y = %d - window.scrollY;
  var selectors = %s;
  for (var i = 0; i < selectors.length; i++) {
    var els = document.querySelectorAll(selectors[i]);
    for (var j = 0; j < els.length; j++) {
      var el = els[j];
      var r = el.getBoundingClientRect();
      if (x >= r.left && x <= r.right && y >= r.top && y <= r.bottom &&
          el.offsetWidth > 0 && el.offsetHeight > 0) {
        return {tag: el.tagName, className: String(el.className), top: r.top + window.scrollY, centerX: (r.left + r.right) / 2};
      }
    }
  }
  return null;
})();`, x, pageY, interactiveSelectors)
}

func dispatchScript(x, pageY int, events []string, miss string) string {
	ctors := make([]string, len(events))
	for i, ev := range events {
		ctor := "MouseEvent"
		if strings.HasPrefix(ev, "pointer") {
			ctor = "PointerEvent"
		}
		ctors[i] = fmt.Sprintf("new %s('%s', opts)", ctor, ev)
	}
	list := strings.Join(ctors, ",\n      ")
	return fmt.Sprintf(`(function() {
  var x = %d;
  var y = %d - window.scrollY;
  var el = document.elementFromPoint(x, y);
  if (el && el.offsetWidth > 0 && el.offsetHeight > 0) {
    var opts = {view: window, bubbles: true, cancelable: true, clientX: x, clientY: y};
    var events = [
      %s
    ];
    for (var i = 0; i < events.length; i++) {
      el.dispatchEvent(events[i]);
    }
    return el.tagName + '|' + el.className;
  }
  return '%s';
})();`, x, pageY, list, miss)
}

// hoverScript dispatches the hover family at a page-space point. It
// returns an empty string when nothing is there yet.
func hoverScript(x, pageY int) string {
	return dispatchScript(x, pageY, []string{
		"mouseover", "mouseenter", "mousemove",
		"pointerover", "pointerenter", "pointermove",
	}, "")
}

const clickMiss = "No element found"

// clickScript dispatches mouse down, up and click at a page-space point.
func clickScript(x, pageY int) string {
	return dispatchScript(x, pageY, []string{"mousedown", "mouseup", "click"}, clickMiss)
}

// geometryScript measures the scrollable content, including fixed and
// sticky elements that extend below the document flow.
const geometryScript = `(function() {
  var originalScrollY = window.scrollY;
  window.scrollTo(window.scrollX, Number.MAX_SAFE_INTEGER);
  var maxScrollY = window.scrollY;
  window.scrollTo(window.scrollX, originalScrollY);

  var height = Math.max(
    document.body.scrollHeight,
    document.documentElement.scrollHeight,
    document.body.offsetHeight,
    document.documentElement.offsetHeight,
    window.innerHeight,
    maxScrollY + window.innerHeight
  );
  var width = Math.max(
    document.body.scrollWidth,
    document.documentElement.scrollWidth,
    document.body.offsetWidth,
    document.documentElement.offsetWidth,
    window.innerWidth
  );
  var els = document.querySelectorAll('[style*="position"], nav, footer, [role="navigation"]');
  for (var i = 0; i < els.length; i++) {
    var style = window.getComputedStyle(els[i]);
    if ((style.position === 'fixed' || style.position === 'sticky') &&
        style.display !== 'none' && style.visibility !== 'hidden') {
      var rect = els[i].getBoundingClientRect();
      height = Math.max(height, rect.bottom + window.scrollY);
    }
  }
  return {width: width, height: height};
})();`

const fullscreenFixScript = `(function() {
  var videos = document.getElementsByTagName('video');
  for (var i = 0; i < videos.length; i++) {
    videos[i].addEventListener('error', function(e) {
      console.log('video playback error: ' + e.message);
    });
  }
  var style = document.createElement('style');
  style.textContent = 'video { transform: translateZ(0); }';
  document.head.appendChild(style);
})();`

var mutationObserverScript = fmt.Sprintf(`(function() {
  var observer = new MutationObserver(function(mutations) {
    for (var i = 0; i < mutations.length; i++) {
      var t = mutations[i].type;
      if (t === 'childList' || t === 'attributes') {
        window.%s.updateDimensions();
        return;
      }
    }
  });
  observer.observe(document.body, {
    childList: true,
    subtree: true,
    attributes: true,
    attributeFilter: ['style', 'class']
  });
})();`, BridgeName)

const pauseVideosScript = `(function() {
  var videos = document.getElementsByTagName('video');
  for (var i = 0; i < videos.length; i++) {
    videos[i].pause();
  }
})();`

const togglePlayScript = `(function() {
  var videos = document.getElementsByTagName('video');
  if (videos.length > 0) {
    if (videos[0].paused) {
      videos[0].play();
      return 'play';
    }
    videos[0].pause();
    return 'pause';
  }
  return 'no_video';
})();`
